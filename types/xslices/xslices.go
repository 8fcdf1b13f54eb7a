// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices holds small generic slice helpers used throughout the
// scheduler: iota ranges, filled slices, maps over slices and reverse
// iteration. They complement the standard library "slices" package.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Iota returns a slice of incremental int values, starting with start and of the given length.
func Iota[T constraints.Integer](start T, length int) (slice []T) {
	slice = make([]T, length)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// SliceWithValue creates a slice of the given length filled with the given value.
func SliceWithValue[T any](length int, value T) []T {
	s := make([]T, length)
	for ii := range s {
		s[ii] = value
	}
	return s
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Keys returns the keys of a map in the form of a slice. Ordering is undefined.
func Keys[K comparable, V any](m map[K]V) []K {
	s := make([]K, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	return s
}

// Last returns the last element of a slice. It panics on an empty slice.
func Last[T any](slice []T) T {
	return slice[len(slice)-1]
}

// Reverse the order of the elements of the slice, in place.
func Reverse[T any](slice []T) {
	for ii := 0; ii < len(slice)/2; ii++ {
		jj := len(slice) - ii - 1
		slice[ii], slice[jj] = slice[jj], slice[ii]
	}
}

// Product returns the product of all elements of the slice. It returns 1 for an empty slice.
func Product[T constraints.Integer](slice []T) (p T) {
	p = 1
	for _, v := range slice {
		p *= v
	}
	return
}
