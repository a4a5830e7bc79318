// Package chunking splits email text into bounded, overlapping segments for embedding.
//
// Chunking runs in three steps:
//   - Preprocess strips greetings, quoted replies, signatures and disclaimers
//   - paragraphs (separated by blank lines) that fit within the word budget are
//     filtered for low-information sentences and emitted whole
//   - larger paragraphs are split into sentences and packed greedily, each new
//     chunk seeded with the trailing sentences of the previous one
//
// Overlap is configured in the same unit as the original word budget but applied
// in sentences: a configured overlap of N keeps ceil(N/10) sentences. The default
// overlap of 100 therefore carries 10 sentences into the next chunk.
package chunking
