// Package core contains the shared contracts and domain types of the
// federation endpoint: resolved document views, delivery rows, the
// persistence contracts consumed by the delivery worker, and the
// configuration surface.
package core
