package viewer

import "github.com/ardanlabs/meshchain/foundation/blockchain/database"

type peerInfo struct {
	ID   uint32 `json:"id"`
	Host string `json:"host"`
}

type status struct {
	ID                uint32     `json:"id"`
	Host              string     `json:"host"`
	Difficulty        uint       `json:"difficulty"`
	Blocks            int        `json:"blocks"`
	LatestBlockHash   string     `json:"latest_block_hash"`
	LatestBlockNumber uint32     `json:"latest_block_number"`
	Uncommitted       int        `json:"uncommitted"`
	KnownPeers        []peerInfo `json:"known_peers"`
	Wallets           []peerInfo `json:"wallets"`
}

type block struct {
	database.Block
	Transactions []string `json:"transactions"`
}
