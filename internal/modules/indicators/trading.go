package indicators

import (
	"math"

	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/formulas"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// TradeCount is the number of round trips, approximated as
// min(buys, sells).
func TradeCount(transactions []engine.Transaction) int {
	buys, sells := 0, 0
	for _, t := range transactions {
		switch side, _ := engine.ParseSide(string(t.Side)); side {
		case engine.SideBuy:
			buys++
		case engine.SideSell:
			sells++
		}
	}
	if buys < sells {
		return buys
	}
	return sells
}

// TurnoverRate is annualized traded volume over average NAV.
func TurnoverRate(transactions []engine.Transaction, nav *timeseries.Series) float64 {
	volume := tradedVolume(transactions, "")
	return annualizeTurnover(volume, nav)
}

// TurnoverByAsset is the annualized per-symbol turnover rate.
func TurnoverByAsset(transactions []engine.Transaction, nav *timeseries.Series) map[string]float64 {
	out := make(map[string]float64)
	seen := make(map[string]bool)
	for _, t := range transactions {
		side, err := engine.ParseSide(string(t.Side))
		if err != nil || (side != engine.SideBuy && side != engine.SideSell) || seen[t.Symbol] {
			continue
		}
		seen[t.Symbol] = true
		if rate := annualizeTurnover(tradedVolume(transactions, t.Symbol), nav); rate != 0 {
			out[t.Symbol] = rate
		}
	}
	return out
}

func tradedVolume(transactions []engine.Transaction, symbol string) float64 {
	volume := 0.0
	for _, t := range transactions {
		side, err := engine.ParseSide(string(t.Side))
		if err != nil || (side != engine.SideBuy && side != engine.SideSell) {
			continue
		}
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		volume += math.Abs(t.Quantity * t.Price)
	}
	return volume
}

func annualizeTurnover(volume float64, nav *timeseries.Series) float64 {
	if volume == 0 || nav.Empty() {
		return 0
	}
	avgNAV := formulas.Mean(nav.Values())
	if avgNAV == 0 {
		return 0
	}
	first, _ := nav.First()
	last, _ := nav.Last()
	days := first.DaysBetween(last)
	if days <= 0 {
		return 0
	}
	return volume / avgNAV * 365.0 / float64(days)
}

// AvgHoldingPeriod is the mean days between matched buy and sell.
func AvgHoldingPeriod(transactions []engine.Transaction) float64 {
	trades := ClosedTrades(transactions)
	if len(trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, trade := range trades {
		sum += math.Floor(trade.SellDate.Sub(trade.BuyDate).Hours() / 24)
	}
	return sum / float64(len(trades))
}

// WinRate is the fraction of closed trades with positive PnL.
func WinRate(transactions []engine.Transaction) float64 {
	trades := ClosedTrades(transactions)
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, trade := range trades {
		if trade.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// ProfitLossRatio is the average winning PnL over the absolute average
// losing PnL; 0 when either side is empty.
func ProfitLossRatio(transactions []engine.Transaction) float64 {
	trades := ClosedTrades(transactions)
	winSum, lossSum := 0.0, 0.0
	wins, losses := 0, 0
	for _, trade := range trades {
		if trade.PnL > 0 {
			winSum += trade.PnL
			wins++
		} else if trade.PnL < 0 {
			lossSum += -trade.PnL
			losses++
		}
	}
	if wins == 0 || losses == 0 {
		return 0
	}
	avgWin := winSum / float64(wins)
	avgLoss := lossSum / float64(losses)
	if avgLoss == 0 {
		return 0
	}
	return avgWin / avgLoss
}

// ProfitFactor is gross profit over gross loss, +Inf with profits and no
// losses.
func ProfitFactor(transactions []engine.Transaction) float64 {
	grossProfit, grossLoss := 0.0, 0.0
	for _, trade := range ClosedTrades(transactions) {
		if trade.PnL > 0 {
			grossProfit += trade.PnL
		} else if trade.PnL < 0 {
			grossLoss += -trade.PnL
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// MaxTradeProfit is the best single closed-trade PnL.
func MaxTradeProfit(transactions []engine.Transaction) float64 {
	trades := ClosedTrades(transactions)
	if len(trades) == 0 {
		return 0
	}
	max := math.Inf(-1)
	for _, trade := range trades {
		if trade.PnL > max {
			max = trade.PnL
		}
	}
	return max
}

// MaxTradeLoss is the worst single closed-trade PnL.
func MaxTradeLoss(transactions []engine.Transaction) float64 {
	trades := ClosedTrades(transactions)
	if len(trades) == 0 {
		return 0
	}
	min := math.Inf(1)
	for _, trade := range trades {
		if trade.PnL < min {
			min = trade.PnL
		}
	}
	return min
}

// ConsecutiveWinningTrades is the longest run of profitable closed trades.
func ConsecutiveWinningTrades(transactions []engine.Transaction) int {
	return tradeStreak(transactions, func(pnl float64) bool { return pnl > 0 })
}

// ConsecutiveLosingTrades is the longest run of losing closed trades.
func ConsecutiveLosingTrades(transactions []engine.Transaction) int {
	return tradeStreak(transactions, func(pnl float64) bool { return pnl < 0 })
}

func tradeStreak(transactions []engine.Transaction, match func(float64) bool) int {
	current, longest := 0, 0
	for _, trade := range ClosedTrades(transactions) {
		if match(trade.PnL) {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

// RecoveryFactor is net profit over absolute max drawdown, +Inf for a
// profitable series that never drew down.
func RecoveryFactor(nav *timeseries.Series) float64 {
	if nav.Len() < 2 {
		return 0
	}
	netProfit := TotalReturn(nav)
	maxDD := math.Abs(MaxDrawdown(nav))
	if maxDD == 0 {
		if netProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return netProfit / maxDD
}

// KellyCriterion is the optimal bet fraction (b·p - q)/b, clamped to be
// non-negative.
func KellyCriterion(winRate, profitLossRatio float64) float64 {
	if winRate <= 0 || winRate >= 1 || profitLossRatio <= 0 {
		return 0
	}
	kelly := (profitLossRatio*winRate - (1 - winRate)) / profitLossRatio
	if kelly < 0 {
		return 0
	}
	return kelly
}

// TradingMetrics bundles the trading behavior statistics.
type TradingMetrics struct {
	TradeCount               int     `json:"trade_count"`
	TurnoverRate             float64 `json:"turnover_rate"`
	AvgHoldingPeriod         float64 `json:"avg_holding_period"`
	WinRate                  float64 `json:"win_rate"`
	ProfitLossRatio          float64 `json:"profit_loss_ratio"`
	ProfitFactor             float64 `json:"profit_factor"`
	MaxTradeProfit           float64 `json:"max_trade_profit"`
	MaxTradeLoss             float64 `json:"max_trade_loss"`
	ConsecutiveWinningTrades int     `json:"consecutive_winning_trades"`
	ConsecutiveLosingTrades  int     `json:"consecutive_losing_trades"`
	RecoveryFactor           float64 `json:"recovery_factor"`
	KellyCriterion           float64 `json:"kelly_criterion"`

	TurnoverByAsset map[string]float64 `json:"turnover_by_asset,omitempty"`
}

// AllTradingMetrics computes the full trading behavior bundle at once.
func AllTradingMetrics(transactions []engine.Transaction, nav *timeseries.Series) TradingMetrics {
	winRate := WinRate(transactions)
	plRatio := ProfitLossRatio(transactions)
	return TradingMetrics{
		TradeCount:               TradeCount(transactions),
		TurnoverRate:             TurnoverRate(transactions, nav),
		AvgHoldingPeriod:         AvgHoldingPeriod(transactions),
		WinRate:                  winRate,
		ProfitLossRatio:          plRatio,
		ProfitFactor:             ProfitFactor(transactions),
		MaxTradeProfit:           MaxTradeProfit(transactions),
		MaxTradeLoss:             MaxTradeLoss(transactions),
		ConsecutiveWinningTrades: ConsecutiveWinningTrades(transactions),
		ConsecutiveLosingTrades:  ConsecutiveLosingTrades(transactions),
		RecoveryFactor:           RecoveryFactor(nav),
		KellyCriterion:           KellyCriterion(winRate, plRatio),
	}
}
