// Package backend implements the HTTP client for the notera backend's live
// meeting endpoints: creating a live meeting, uploading chunk files as
// multipart forms, and finalizing the meeting. Requests are made exactly
// once; callers decide what a failure means.
package backend
