// Package harness runs end-to-end scenarios against the sync state machine.
//
// Each scenario drives a fresh in-memory Replicator through a list of steps
// and then checks the catalog tables and the replicator status.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	strict: true
//	backend: sqlite3          # optional, sqlite3 or sqlite
//	steps:
//	  - set: "marist,202420"
//	  - apply_select:
//	      updated_watermarks: {marist: {"202420": 5}}
//	      changes: []
//	      any_has_more: false
//	  - set: everything
//	    expect_error: STATE_CONFLICT
//	  - expect_request:
//	      exclude: {}
//	      max_records: 10000
//	      schools: {marist: {"202420": 5}}
//	assertions:
//	  - type: final_state
//	    table: schools
//	    where: { id: "marist" }
//	    expect: { name: "Marist College" }
//	  - type: row_count
//	    table: courses
//	    count: 0
//	  - type: status
//	    expect: { mode: select }
//
// Payloads and expected requests are written in their JSON wire shape.
// An apply_select step is answered against the request generated right
// before it, the same way the sync cycle echoes its request.
//
// # Assertion Types
//
//   - final_state: Queries one catalog row and verifies expected values
//   - row_count: Verifies the number of rows in a table
//   - status: Verifies fields of the replicator status
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/exclusions.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
