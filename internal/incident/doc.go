// Package incident fetches incident records from a ServiceNow-style table API
// and normalizes them into the fixed record shape pushed to desktop clients.
package incident
