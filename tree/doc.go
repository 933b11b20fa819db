// Package tree implements a path-addressable JSON document tree on top of a
// flat [store.Adapter].
//
// A path's first segment names a bucket, the second a record inside it and
// the rest a field inside the record's value. [Tree] exposes the write
// operations (Create, Replace, Merge, Remove), ordered and filtered reads
// (Query, Get) and the index registry (SetIndex, GetIndex, DeleteIndex)
// that gates which orderings a scope may use.
//
// # Writes
//
// Nested writes are expressed as single atomic field-sets against the
// adapter, never as a read-modify-write of a whole record. Multi-step
// sequences touching one record (existence check then upsert, unset then
// empty-record cleanup) are serialized per record inside the process.
//
// # Queries
//
//	spec := tree.QuerySpec{
//	    OrderBy:      tree.ByField("age"),
//	    StartAt:      ptr(value.Number(18)),
//	    LimitToFirst: 10,
//	}
//	res, err := t.Query(ctx, treepath.Parse("/users"), spec)
//
// Ordering by value or by a child field requires an index rule at the
// query's scope:
//
//	t.SetIndex(ctx, treepath.Parse("/users"), value.Text("age"))
//
// # Errors
//
//   - [ErrInvalidPayload] - missing or wrong-shaped write body
//   - [ErrInvalidQuery] - illegal parameter combination
//   - [ErrInvalidFilterType] - range bound of a kind the ordering cannot compare
//   - [ErrIndexNotDefined] - ordering without an index rule, see [IndexNotDefinedError]
//   - [ErrNotFound] - delete or query target absent
//   - [ErrStorage] - adapter failure or failed write verification
//   - [ErrInvalidPath] - path the operation cannot address
package tree
