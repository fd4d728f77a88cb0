// Command ucanctl runs one CAN node from a service config and a node file.
//
//	ucanctl run -config cmd/ucanctl/config.toml
//	ucanctl init -role master -output cmd/ucanctl/node.toml
//	ucanctl validate -node cmd/ucanctl/node.toml
package main
