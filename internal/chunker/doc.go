// Package chunker splits documents into overlapping text chunks for
// indexing.
//
// Splitting is recursive over a list of separators (by default paragraph
// breaks, line breaks, spaces, then single characters). Text is cut at the
// coarsest separator it contains; pieces still longer than the chunk size
// are cut again with the next separator. Adjacent small pieces are merged
// back together up to the chunk size, and each new chunk begins with up to
// Overlap characters taken from the end of the previous one so that a
// sentence straddling a boundary stays searchable.
//
// Sizes are measured in characters (runes). The defaults are 800 and 100.
//
//	c, _ := chunker.New(chunker.Config{})
//	chunks, err := c.ChunkDocument(chunker.Document{
//	    ID:      "payments-refunds",
//	    Title:   "Refunds",
//	    Source:  "https://docs.stripe.com/refunds",
//	    Content: body,
//	})
//	// chunks[0].ID == "payments-refunds_chunk_0"
package chunker
