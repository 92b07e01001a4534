// Package transfer layers caller-side policy on top of the dropbox client's
// chunked upload session: resume records persisted between runs, a shared
// bandwidth limiter, and bounded parallel batch uploads.
//
// The dropbox package never retries. Uploader is where the retry decision
// lives: it persists the last server-confirmed offset after every chunk, and
// the next run resumes from there. When the server no longer knows a resumed
// upload id, the record is discarded and the file restarts from zero once.
// Files that fit in a single chunk skip the session and go up with one
// files_put request.
package transfer
