/*

Minimal ABIs for the governance contracts this service talks to.

*/

package contracts

const (
	// GaugeControllerABI covers voting and per-user vote bookkeeping.
	GaugeControllerABI = `[
		{"name":"vote_for_many_gauge_weights","inputs":[{"name":"_gauge_addrs","type":"address[8]"},{"name":"_user_weight","type":"uint256[8]"}],"outputs":[],"stateMutability":"nonpayable","type":"function"},
		{"name":"vote_user_slopes","inputs":[{"name":"arg0","type":"address"},{"name":"arg1","type":"address"}],"outputs":[{"name":"slope","type":"uint256"},{"name":"power","type":"uint256"},{"name":"end","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"name":"last_user_vote","inputs":[{"name":"arg0","type":"address"},{"name":"arg1","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"name":"vote_user_power","inputs":[{"name":"arg0","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"name":"gauge_relative_weight","inputs":[{"name":"addr","type":"address"},{"name":"time","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`

	// OmniVotingEscrowABI covers the LayerZero veBAL bridge.
	OmniVotingEscrowABI = `[
		{"name":"estimateSendUserBalance","inputs":[{"name":"_dstChainId","type":"uint16"}],"outputs":[{"name":"nativeFee","type":"uint256"},{"name":"zroFee","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"name":"sendUserBalance","inputs":[{"name":"_user","type":"address"},{"name":"_dstChainId","type":"uint16"},{"name":"_refundAddress","type":"address"}],"outputs":[],"stateMutability":"payable","type":"function"}
	]`

	// GaugeWorkingBalanceHelperABI reports current and projected boost ratios.
	GaugeWorkingBalanceHelperABI = `[
		{"name":"getWorkingBalanceToSupplyRatios","inputs":[{"name":"gauge","type":"address"},{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`

	// LiquidityGaugeABI is the subset of a gauge used to checkpoint ("poke") a user.
	LiquidityGaugeABI = `[
		{"name":"user_checkpoint","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
		{"name":"balanceOf","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
)
