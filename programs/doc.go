// Package programs executes the entry points of child program images.
//
// WasmHost runs WebAssembly images with wazero. NativeHost binds images, by
// content id, to entry points written in Go, and ships the built-in
// collection program whose initializer validates the collection's sale terms.
package programs
