// Copyright 2021 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*

Package multidma implements a virtual DMA device that presents a single
logical transfer channel to an audio pipeline while fanning the interleaved
sample stream out to several physical DMA links, each bound to one channel
of a multi-channel serial audio fabric.

A Controller owns a fixed set of multiplex channels. A channel is checked out
with Channel, configured with a stream map that routes audio channels onto
link slots, started, and then fed with periodic Copy requests. Each Copy
gathers the routed samples from the shared source ring into each link's own
ring and issues one transfer per link. The per-link completion interrupts are
counted by a barrier, so the channel callback sees exactly one completion per
period no matter how many links are in use.

The physical DMA engine and the routing table are supplied by the caller
through the Engine and Routing interfaces. Package swdma provides a software
engine, which is used by the tests and the example programs:

  ctl, err := multidma.Probe(swdma.New(8), nil, multidma.MaxChannels)
  ch, err := ctl.Channel(0)
  err = ch.SetConfig(&multidma.Config{...})
  err = ch.Start()
  n, err := ch.Copy(periodBytes, 0)

Complete documentation is available via https://github.com/aamcrae/multidma

*/
package multidma
