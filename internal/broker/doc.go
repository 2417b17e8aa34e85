// Package broker provides a RabbitMQ-backed dispatch queue so pending
// submissions survive a restart of the router.
package broker
