// Package outbox publishes locally created objects: it assigns stable
// object ids under the local origin, wraps each object in a Create
// activity, fans the pair out into the delivery queue, and serves the
// published documents over HTTP.
package outbox
