package alloc

// PostingTierConfigs sizes the pools backing small trigram posting lists
// ([]types.FileID). The weights mirror the distribution in
// TrigramTierConfigs: most trigrams over basenames are rare (path
// components are short), a long tail of very common trigrams (three-letter
// sequences like "ing", "con") grows past the largest tier and is promoted
// to a roaring-bitmap representation instead of growing this pool further.
var PostingTierConfigs = []SlabTierConfig{
	{Capacity: 4, Weight: 0.45},
	{Capacity: 8, Weight: 0.30},
	{Capacity: 16, Weight: 0.15},
	{Capacity: 32, Weight: 0.07},
	{Capacity: 64, Weight: 0.03},
}

// ArenaTierConfigs sizes the growth steps for the string arena's backing
// byte buffer. Paths are typically 20-200 bytes; the tiers favor a few
// large growth steps (each four times the previous) over many small ones.
var ArenaTierConfigs = []SlabTierConfig{
	{Capacity: 4096, Weight: 0.5},
	{Capacity: 16384, Weight: 0.3},
	{Capacity: 65536, Weight: 0.15},
	{Capacity: 262144, Weight: 0.05},
}
