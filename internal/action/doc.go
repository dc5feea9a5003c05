// Package action defines the user intents the sync engine records and replays.
//
// A Kind is a closed set; every switch over Kind in this module is exhaustive
// and ends in a default branch that reports an unknown kind. Intents are
// dispatched to the server through a Dispatcher; intents that cannot be
// dispatched yet are wrapped in a Queued record and persisted.
package action
