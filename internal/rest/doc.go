// Package rest is the thin HTTP collaborator the gateway engine needs:
// gateway discovery, the current user and message sends. Captcha challenges
// are handed to a caller-supplied handler and the request is retried once.
package rest
