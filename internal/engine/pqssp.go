package engine

import (
	"github.com/arnavk/pqgraph/internal/graph"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// pqssp scores nodes from their PQ codes via assemble-and-sum against a
// precomputed per-query distance table, and reranks by falling back to an
// exact score against the node's full vector — the two-stage "cheap
// approx, exact rerank on admission" scheme. Under COSINE the approximate
// score comes from the fully decoded vector instead of the table, since
// per-subspace cosines do not sum to the whole-vector cosine.
type pqssp struct {
	quant  *pq.Quantizer
	codes  [][]byte
	metric simdkernel.Metric
	query  []float32
	table  []float32
	at     func(ordinal uint32) []float32
}

func newPQSSP(q *pq.Quantizer, codes [][]byte, metric simdkernel.Metric, query []float32, at func(uint32) []float32) *pqssp {
	table, err := q.DistanceTable(query)
	if err != nil {
		panic(err) // dimension mismatch is a caller error; Index checks the query dimension before building a pqssp
	}
	return &pqssp{quant: q, codes: codes, metric: metric, query: query, table: table, at: at}
}

// ApproxScore implements graph.SSP.
func (s *pqssp) ApproxScore(node uint32) float32 {
	if s.metric == simdkernel.Cosine {
		return s.metric.Score(s.query, s.quant.Decode(s.codes[node]))
	}
	raw := pq.ApproxRawScore(s.table, s.quant.ClusterCount, s.codes[node])
	return s.metric.Report(raw)
}

// Rerank implements graph.SSP: the exact score against the node's
// uncompressed vector.
func (s *pqssp) Rerank(node uint32) (float32, bool) {
	return s.metric.Score(s.query, s.at(node)), true
}

var _ graph.SSP = (*pqssp)(nil)
