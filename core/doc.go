// Package core contains the dataspace transaction contracts, typed results and
// the orchestration that walks a consumer from catalog discovery to protected
// resource access. Transport, narration and persistence adapters depend on this
// package; core must not depend on them.
package core
