package aggregates

// WriteTxOwnership defines who owns write transaction boundaries.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate means aggregate write methods start/manage atomic DB transactions internally.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
)

// ReadPolicy defines how aggregate contracts should expose reads.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped allows only reads needed for invariant decisions in write flows.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// ReadPolicyTableRepoQueries keeps broad read-model queries on table repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

// Contract describes aggregate-level policy expectations.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is the common marker for all aggregate contracts.
type Aggregate interface {
	Contract() Contract
}

// JobAggregateContract covers the job lifecycle: escrow funding, applicant
// selection, contract signing, work review, cancellation and expiry. Every
// write locks the job row first; fund-moving writes run ledger-first.
var JobAggregateContract = Contract{
	Name:             "escrow.job",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "transitions are serialized per job id via row locks; deadline transitions are state-guarded and idempotent",
}

// DisputeAggregateContract covers the dispute sub-aggregate nested under a
// DISPUTED job: evidence, committee rounds, votes and final settlement.
var DisputeAggregateContract = Contract{
	Name:             "escrow.dispute",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "round committees are immutable once assigned; 2-of-3 resolution is re-evaluated on every vote insert",
}
