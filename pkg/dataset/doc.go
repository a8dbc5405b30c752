// Copyright 2026 The yolofe Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset scans image datasets laid out as one subdirectory per object class, and splits them into
// train/test manifests for the trainer.
//
// A dataset looks like:
//
//	datasets/<name>/
//	  ├── car/
//	  │   ├── 0001.jpg
//	  │   └── 0001.txt
//	  └── person/
//	      ├── a.png
//	      └── a.txt
//
// Images and annotations are paired by base name. Pairs are not enforced: images without annotations are
// reported as unmatched but still listed.
package dataset
