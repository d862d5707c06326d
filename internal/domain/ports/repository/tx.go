package repository

// Tx is an opaque transaction handle. The concrete type is infra-defined
// (pgx.Tx for Postgres). Repositories MUST accept nil, meaning "use the pool".
type Tx interface{}

var NoTX Tx
