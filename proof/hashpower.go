package proof

import "math/big"

// maxShift is the shift at which MinHashpower<<shift first reaches
// MaxHashpower (5 * 2^14 == 81_920); beyond it the value is capped.
const maxShift = 14

// Hashpower returns the reward-weight assigned to a submission of the
// given difficulty: min(MinHashpower * 2^(difficulty-MinDifficulty),
// MaxHashpower). Submissions below MinDifficulty carry no weight.
func Hashpower(difficulty uint32) uint64 {
	if difficulty < MinDifficulty {
		return 0
	}
	shift := difficulty - MinDifficulty
	if shift >= maxShift {
		return MaxHashpower
	}
	hp := MinHashpower << shift
	if hp > MaxHashpower {
		return MaxHashpower
	}
	return hp
}

var ppmBase = big.NewInt(1_000_000)

// SharePpm returns the contributor's share of the reward in parts per
// million, floored: floor(hashpower * 1_000_000 / totalHashpower).
func SharePpm(hashpower, totalHashpower uint64) uint64 {
	if totalHashpower == 0 {
		return 0
	}
	share := new(big.Int).Mul(new(big.Int).SetUint64(hashpower), ppmBase)
	share.Div(share, new(big.Int).SetUint64(totalHashpower))
	return share.Uint64()
}

// Earned returns floor(sharePpm(hashpower, totalHashpower) * reward /
// 1_000_000), the token amount attributed to one contributor. All
// arithmetic is performed in arbitrary precision to avoid overflow on the
// intermediate product; tokens lost to flooring are not redistributed
// (bounded by the number of contributors, see the reward package).
func Earned(hashpower, totalHashpower, reward uint64) uint64 {
	if totalHashpower == 0 {
		return 0
	}
	ppm := SharePpm(hashpower, totalHashpower)
	earned := new(big.Int).Mul(new(big.Int).SetUint64(ppm), new(big.Int).SetUint64(reward))
	earned.Div(earned, ppmBase)
	return earned.Uint64()
}
