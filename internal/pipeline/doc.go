/*
Pipeline runs one batch trading pass over a portfolio.

# Module
  - strategy runner: evaluates every strategy concurrently against the pass snapshot of market data
  - reconciler: reduces the signals to one per symbol, conflicting actions fail the pass
  - risk profile builder: scales each strategy's limits by the risk appetite
  - proposer: gates candidate trades, breaches are skipped, unknown assets and missing cash fail the pass
  - executor: applies trades in order under the portfolio lock, stops at the first exchange failure

# Source
 1. strategies, risk limits, portfolio and ticks from the store
 2. a portfolio snapshot file, when configured
 3. prices, liquidity and fills from the exchange

# Produce
  - reconciled signals, portfolio state and valuations to the store
  - executed trades to the event publisher
  - a Report with the non-fatal warnings of the pass

# Sharded
  - portfolio
*/
package pipeline
