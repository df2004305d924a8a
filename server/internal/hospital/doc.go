// Package hospital holds the operating state of each hospital.
//
// A Repository stores one HospitalState per hospital ID. Put upserts in place
// and stamps UpdatedAt; there is no delete. Memory is the default backend,
// Postgres persists to the hospital_states table.
package hospital
