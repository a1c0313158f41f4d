package snippet

const cTemplate = `#include <stdio.h>

/* Tracking string - DO NOT REMOVE */
/* This string is used for binary attribution/tracking */

static volatile const char TRACKING_STRING[] = "{{.Value}}";

/* Runs at startup so the string is kept */
__attribute__((constructor, used))
static void _tracking_init(void) {
    volatile const char* p = TRACKING_STRING;
    (void)p;
}
`

const cppTemplate = `#include <cstdio>

// Tracking string - DO NOT REMOVE
// This string is used for binary attribution/tracking

static volatile const char TRACKING_STRING[] = "{{.Value}}";

// Runs at startup so the string is kept
__attribute__((constructor, used))
static void _tracking_init() {
    volatile const char* p = TRACKING_STRING;
    (void)p;
}
`

const goTemplate = `package main

// Tracking string - DO NOT REMOVE
// This string is used for binary attribution/tracking

var trackingString = "{{.Value}}"

// init keeps the string in the binary.
func init() {
	_ = trackingString
}
`

const rustTemplate = `// Tracking string - DO NOT REMOVE
// This string is used for binary attribution/tracking

#[used]
#[no_mangle]
static TRACKING_STRING: &[u8] = b"{{.Value}}";

// Ensure the string is not optimized away
#[inline(never)]
fn _tracking_init() {
    let _ = unsafe { std::ptr::read_volatile(&TRACKING_STRING) };
}
`

const csharpTemplate = `// Tracking string - DO NOT REMOVE
// This string is used for binary attribution/tracking

using System.Runtime.CompilerServices;

public static class TrackingString
{
    public static readonly string Value = "{{.Value}}";

    // Static constructor ensures the string is kept
    [MethodImpl(MethodImplOptions.NoInlining)]
    static TrackingString()
    {
        _ = Value.Length;
    }
}
`

const javaTemplate = `// Tracking string - DO NOT REMOVE
// This string is used for binary attribution/tracking

public class TrackingString {
    public static final String VALUE = "{{.Value}}";

    // Static block ensures the string is kept in the class file
    static {
        @SuppressWarnings("unused")
        int len = VALUE.length();
    }
}
`

const pythonTemplate = `# Tracking string - DO NOT REMOVE
TRACKING_STRING = "{{.Value}}"
TRACKING_STRING_LEN = {{.Len}}
`

const javaScriptTemplate = `// Tracking string - DO NOT REMOVE
const TRACKING_STRING = "{{.Value}}";
const TRACKING_STRING_LEN = {{.Len}};

// For ES6 modules:
// export { TRACKING_STRING, TRACKING_STRING_LEN };
`

const powerShellTemplate = `# Tracking string - DO NOT REMOVE
$TrackingString = "{{.Value}}"
$TrackingStringLen = {{.Len}}
`
