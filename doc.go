// Package safesave and its sub-packages implement the backend of Safe-Save, a savings group (ikimina) application
// whose funds, loans, investments and reward badges live in Cardano smart contracts.
/*
safesave provides you with two microservices and a deployment tool:

1) an api microservice (package api) that implements the RESTful API used by the frontend: wallet authentication,
 decoded views of the savings, loan, investment and rewards contracts, transactions prepared for the user's wallet to
 sign and the savings groups kept in the database.

2) a watcher microservice (package watcher) that polls the contract addresses and sends an event to the message broker
 for every output created at or spent from them.

3) a deployment tool (package deploy) that builds the aiken validators and writes the script addresses the services
 are configured with.

Architecture

The services never hold keys: the user's browser wallet signs every transaction. The ledger is read through a hosted
indexer (package lib/block, Blockfrost) and the inline datums of contract outputs are decoded by package lib/datum.

The api and watcher services communicate via a message broker (package lib/msg). The watcher publishes ledger events
the api consumes to drop its cached utxo sets (package lib/cache), and the api asks the watcher to poll a contract
right after a transaction is submitted. A single binary deployment runs both services in one process linked by an in
process broker.

Groups and the watcher state are persisted in a database (package lib/store) which can be MongoDB, PostgreSQL or
memory for development.

The microservices can also be monitored via a Prometheus API by setting the flag "-m" at startup.

API

The api microservice can be started running cmd/api/main.go. Every route under /api except /api/auth/connect-wallet
requires the bearer token replied by it. Replies are JSON objects with a "success" field, and an "error" message when
it is false.

Watcher

The watcher microservice can be started running cmd/watcher/main.go, or inside the api process with its "-w" flag.
Polls are scheduled with a cron spec per contract and its state survives restarts, so outputs created or spent while
it was down are reported on the next poll.

*/
package safesave
