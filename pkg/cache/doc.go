// Package cache keeps the index of media files downloaded for playback.
//
// The snippet accepts http(s) media URIs. Each URI is fetched once into a cache directory and
// replayed from disk afterwards. A [MediaCache] records which URI maps to which file so the
// mapping survives restarts of the snippet server.
//
// The MediaCache uses a least-recently-fetched eviction strategy: once MaxEntries is exceeded the
// entry with the oldest FetchedAt time is removed, and the caller is responsible for deleting the
// corresponding file.
package cache
