// Package export writes finished tracking sessions to files: CSV and text
// trajectories, a JSON summary, PNG plots, an HTML chart report and, when
// imagery persistence is on, per-frame PNGs of both views and the disparity
// map.
//
// Every writer goes through fsutil.FileSystem and places its files under
// <Dir>/<session id>/, so several writers can share one output directory.
package export
