// Package deliver runs the outbound delivery queue: a cooperative
// worker loop that resolves recipient inboxes, batches deliveries
// sharing an inbox, retries with exponential backoff, and wakes on
// both a poll timer and the cross-process change notification.
//
// Every dequeue cycle is one transaction; multiple worker processes
// coordinate purely through skip-locked row selection.
package deliver
