// Package users persists operator accounts in a flat JSON file.
//
// The file holds an ordered array of records:
//
//	[
//	  {"username": "admin", "password": "$2a$12$...", "role": "admin"}
//	]
//
// The store keeps the records in memory and rewrites the whole file on every
// append (write to a temporary sibling, fsync, rename). A single writer lock
// serialises appends; readers see either the old or the new snapshot. There is
// no update or delete path.
package users
