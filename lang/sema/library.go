// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

package sema

// LibraryDeclaration aggregates a name and a set of intrinsic or
// user-imported methods (spec §3 "LibraryDeclaration aggregates a name and
// a set of MethodInterfaces"; Glossary "Library").
type LibraryDeclaration struct {
	Name    string
	methods map[string]*MethodInterface
	order   []string
}

// NewLibrary creates an empty library declaration named name.
func NewLibrary(name string) *LibraryDeclaration {
	return &LibraryDeclaration{Name: name, methods: make(map[string]*MethodInterface)}
}

// Declare adds m to the library, setting m.OwningLibrary.
func (l *LibraryDeclaration) Declare(m *MethodInterface) {
	m.OwningLibrary = l
	if _, exists := l.methods[m.Name]; !exists {
		l.order = append(l.order, m.Name)
	}
	l.methods[m.Name] = m
}

// Lookup returns the method named name, if declared.
func (l *LibraryDeclaration) Lookup(name string) (*MethodInterface, bool) {
	m, ok := l.methods[name]
	return m, ok
}

// Methods returns the library's methods in declaration order.
func (l *LibraryDeclaration) Methods() []*MethodInterface {
	out := make([]*MethodInterface, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.methods[name])
	}
	return out
}
