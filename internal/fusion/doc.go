// Package fusion rescales keyword and vector scores onto a comparable range
// and merges them into a single ranking.
//
// Normalization methods:
//
//   - minmax: (s - min) / (max - min); a flat list maps every score to 0.5.
//   - softmax: exp((s - max)/T) / Σ exp((s_i - max)/T). Small T sharpens the
//     distribution toward the top score. The default T is 2.0.
//   - none: raw scores pass through. BM25 and cosine live on different
//     scales, so fused rankings under none are usually dominated by whichever
//     path produces larger numbers.
//
// Fuse computes combined = alpha*normVector + beta*normKeyword. A chunk found
// by only one path gets 0 for the other. Results are sorted by combined score
// with ties broken by vector rank, keyword rank, then corpus insertion order.
//
// Weight profiles map a closed set of query kinds to default weights.
// Queries that look like error codes or API tokens lean on keyword matching:
//
//	kind := fusion.ClassifyQuery("why do I get card_declined?")
//	w := fusion.DefaultProfiles().WeightsFor(kind) // {Vector: 0.4, Keyword: 0.6}
package fusion
