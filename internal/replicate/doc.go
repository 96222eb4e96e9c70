// Package replicate implements the sync state machine and the atomic result
// applier on top of the SQLite state store.
//
// A store is in exactly one mode, derived from its contents:
//
//	Unset --SetResources(Everything)--> All    --ApplyAllResult-->    All
//	Unset --SetResources(Selection)---> Select --ApplySelectResult--> Select
//
// Setting the opposite mode while one is active is a StateConflict and
// changes nothing. A store holding evidence of both modes is Dirty and
// rejects every operation until it is repaired by hand.
//
// Every operation runs in one transaction. A result is applied by recording
// the new watermarks and executing every change record in that transaction,
// so a failed record leaves the watermarks untouched and the next cycle asks
// for the same range again.
package replicate
