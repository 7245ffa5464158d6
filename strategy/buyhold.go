package strategy

import "github.com/rustyeddy/tradebook/market"

const BuyAndHoldName = "buy-and-hold"

// BuyAndHold invests all cash at the first affordable close and sells on
// the last day. It is the usual benchmark.
type BuyAndHold struct {
	entered bool
}

func (b *BuyAndHold) Name() string { return BuyAndHoldName }

func (b *BuyAndHold) Prepare(*market.Series) error {
	b.entered = false
	return nil
}

func (b *BuyAndHold) OnDay(d Day) error {
	switch {
	case d.Last && d.Log.NumOpenTrades() > 0:
		_, err := d.Log.ExitTrade(d.Bar.Date, d.Bar.Close)
		return err
	case !d.Last && !b.entered:
		shares := d.Log.CalcShares(d.Bar.Close, d.Log.Cash())
		if shares == 0 {
			return nil
		}
		b.entered = true
		return d.Log.EnterTrade(d.Bar.Date, d.Bar.Close, shares)
	}
	return nil
}
