package main

import "os"

var toggleSignals []os.Signal
