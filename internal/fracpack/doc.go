// Package fracpack implements the fracpack binary format for Go values.
//
// A packed value is a fixed region followed by a heap. Variable-size members
// occupy a 4-byte slot in the fixed region holding an offset measured from the
// slot itself; offset 0 denotes an empty container and offset 1 an absent
// optional. Decoding is strict: every heap entry must begin exactly where the
// previous one ended, so each value has a single canonical encoding.
//
// Go types map onto the format as follows:
//
//	bool, intN, uintN, floatN   scalars (little-endian)
//	string, []byte, Hex         u32 byte length + payload
//	[]T                         list
//	[N]T                        array (length carried by the type)
//	*T                          optional
//	struct                      extensible object; embed Final for a fixed struct,
//	                            Tuple for a positional tuple, Union for a variant
//	Nested[T]                   length-framed nested document
//	map[K]V                     list of {key, value} objects sorted by key
//	time.Time                   i64 microseconds since the Unix epoch
package fracpack
