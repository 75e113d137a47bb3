package utils

// LensArt is the startup banner.
const LensArt = `
 ____                  _
|  _ \ ___ _ __   ___ | |    ___ _ __  ___
| |_) / _ \ '_ \ / _ \| |   / _ \ '_ \/ __|
|  _ <  __/ |_) | (_) | |__|  __/ | | \__ \
|_| \_\___| .__/ \___/|_____\___|_| |_|___/
          |_|`
