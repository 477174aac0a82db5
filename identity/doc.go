// Package identity resolves the authenticated user behind an HTTP request.
package identity
