/*
Package api defines the HTTP surface of the collection factory: request and response
types, header names, the server configuration and, in the clients subpackage, a Go client.

# Endpoints

	POST /api/v1/children                    create a child collection
	GET  /api/v1/children/{child_id}/exists  registry lookup
	GET  /api/v1/accounts/{account_id}/balance

A creation request carries the requesting account in the X-Predecessor-Account-Id header
and the attached deposit, a decimal amount in the smallest unit, in X-Attached-Deposit.
It must also carry "Authorization: Bearer <token>" with the token configured for that account.
The server answers 202 once the provisioning plan is dispatched. With ?wait=true it answers
200 after the callback resolved the request, reporting either "committed" or "refunded".

Rejections map to 400 (malformed input), 401 (token missing or wrong), 402 (insufficient deposit) and 409 (child exists).
*/
package api
