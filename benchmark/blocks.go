package benchmark

import "math/rand"

// Block is one transfer within a cycle.
type Block struct {
	Offset int64
	Length int64
}

// SequentialBlocks partitions [0, totalSize) into ascending blocks of
// blockSize bytes. The final block is shorter when blockSize does not
// divide totalSize.
func SequentialBlocks(totalSize, blockSize int64) []Block {
	if totalSize <= 0 || blockSize <= 0 {
		return nil
	}
	blocks := make([]Block, 0, (totalSize+blockSize-1)/blockSize)
	for off := int64(0); off < totalSize; off += blockSize {
		length := blockSize
		if rest := totalSize - off; rest < length {
			length = rest
		}
		blocks = append(blocks, Block{Offset: off, Length: length})
	}
	return blocks
}

// ShuffledBlocks returns a permutation of blocks drawn from rng. The input
// is left untouched.
func ShuffledBlocks(blocks []Block, rng *rand.Rand) []Block {
	out := make([]Block, len(blocks))
	copy(out, blocks)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// TotalLength sums the block lengths.
func TotalLength(blocks []Block) int64 {
	var n int64
	for _, b := range blocks {
		n += b.Length
	}
	return n
}
