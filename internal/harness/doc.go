// Package harness runs composer scenarios: scripted editing sessions with
// assertions on the resulting query.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: top_states
//	description: "Group by state, order by population"
//	model: ../models/census.yaml
//	source: names
//	steps:
//	  - op: add_field
//	    field: state
//	  - op: add_order_by
//	    index: 1
//	    direction: desc
//	  - op: add_limit
//	    limit: 0
//	    expect_error: INVALID_LIMIT
//	assertions:
//	  - type: source_equals
//	    form: run
//	    expected: |-
//	      run: names -> {
//	        group_by: state
//	      }
//	  - type: can_run
//	    value: true
//
// The model path is resolved relative to the scenario file. Each step is a
// session op; a step declaring expect_error passes only if the op is
// refused with that code.
//
// # Assertion Types
//
//   - source_equals: the query rendered in form (default run) equals expected
//   - can_run: runnability equals value
//   - is_empty: the query carries nothing
//   - summary_item: the summary field at stage/index has the given item
//     type, property, kind or name
//   - stage_count: the top-level pipeline has count stages
//   - history_count: count changes were persisted
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory store with a step clock and
// sequential identifiers, so the trace and rendered source are identical
// across runs. RunWithGolden compares the final run form against
// testdata/golden/<name>.golden.
package harness
