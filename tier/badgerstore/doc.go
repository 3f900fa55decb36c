// Package badgerstore implements the durable session tier on Badger.
//
// A row lives under the key "<table>/<id>" as a msgpack-encoded column map. Lookups by
// primary key are point reads; any other filter scans the table prefix. Each inserted row
// is assigned a UUID row id in the "rowid" column, which survives upserts.
package badgerstore
