// Package feeds persists feeds and articles in SQLite and owns their on-disk
// content layout.
//
// A feed is local when it carries a key name; it is then published under the
// IPNS name of that key. Followed feeds carry only the remote address and are
// refreshed from the remote feed.json manifest. Article rows are deleted with
// their feed through a cascading foreign key, and the feed directory under
// planets/<uuid> is removed alongside.
//
// The database holds metadata only. Manifests, rendered pages and avatars live
// in the directory tree described by Layout. Schema changes are
// appended to the migrations list. Older databases are migrated forward on
// Open and databases from a newer release are rejected.
package feeds
