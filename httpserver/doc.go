/*
Package httpserver serves the collection factory API.

The Handler translates HTTP requests into factory operations and maps the factory's
errors to status codes. The Server wraps it with access logging, health endpoints
(/livez, /readyz, /drain, /undrain), optional pprof and a separate metrics listener.

Draining marks the server not ready so that load balancers stop routing new creation
requests; requests already dispatched still resolve through the factory's callback.
*/
package httpserver
