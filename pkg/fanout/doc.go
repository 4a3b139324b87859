// Package fanout runs independent per-key fetches on a bounded worker pool
// and collects whatever succeeds.
//
// A failing key never fails the batch: its error is logged and reported in
// Result.Failures while the remaining keys continue. Successful values come
// back in the order the keys were given, not completion order.
//
// Example usage:
//
//	res := fanout.Collect(ctx, fanout.DefaultConfig(), symbols,
//	    func(ctx context.Context, sym string) (Item, error) {
//	        bars, err := svc.recentDaily(ctx, sym, key, 5, 5)
//	        if err != nil {
//	            return Item{}, err
//	        }
//	        if len(bars) == 0 {
//	            return Item{}, fanout.ErrSkip
//	        }
//	        return buildItem(sym, bars), nil
//	    })
//	for _, it := range res.Values() { ... }
//
// The collector:
//   - Spawns at most MaxConcurrency workers (default 5)
//   - Bounds each fetch with Timeout
//   - Stops handing out keys once ctx is cancelled
//   - Treats ErrSkip as an expected omission, not a failure
package fanout
