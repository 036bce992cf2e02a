// Package middleware provides the HTTP request pipeline: request IDs,
// structured request logging, panic recovery, actor resolution, and the
// enforcement middleware that gates a route on a module/action pair.
package middleware
