// Package scheduler drives the cycle-by-cycle dispatch of the battery over a
// fully known time series. It partitions the horizon into variable-length
// cycles bounded by solar recharge opportunities, solves one optimization per
// cycle, extends a cycle whose end would leave the battery without charging
// headroom, and stitches the accepted decisions into a continuous
// state-of-charge trajectory.
package scheduler
