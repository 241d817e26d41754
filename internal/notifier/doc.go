// Package notifier delivers chat messages asynchronously.
//
// Callers enqueue a transport.Notification and return immediately; a small
// worker pool drains the queue through the chat adapter under a token-bucket
// rate limit, retrying failed sends with exponential backoff and jitter.
//
// The scheduler's notify job and the startup announcement go through here
// so a slow or failing chat API never blocks a job handler.
package notifier
